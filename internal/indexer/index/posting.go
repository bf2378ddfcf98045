package index

// Posting records one document's term frequency for a single term. Every
// posting has a positive frequency; a term's posting list never contains
// the same document twice.
type Posting struct {
	DocID     string
	Frequency int
}

type PostingList []Posting
