package expander

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table maps a casual lexical key to its related academic terms. Tables are
// loaded once at process start and read-only during serving.
type Table map[string][]string

// LoadTable reads an expansion table from a YAML artifact. Keys are
// lowercased; entries with no values are rejected. An empty path returns the
// built-in default table.
func LoadTable(path string) (Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading expansion table %s: %w", path, err)
	}
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing expansion table %s: %w", path, err)
	}
	table := make(Table, len(raw))
	for key, values := range raw {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" || len(values) == 0 {
			return nil, fmt.Errorf("expansion table %s: key %q has no values", path, key)
		}
		table[key] = values
	}
	return table, nil
}

// DefaultTable returns the built-in expansion table covering the casual and
// academic vocabulary of the indexed arXiv categories.
func DefaultTable() Table {
	return Table{
		// Casual AI/ML terms.
		"ai":           {"artificial intelligence", "machine learning", "deep learning", "neural network"},
		"robot":        {"robotics", "autonomous", "control system", "manipulation"},
		"picture":      {"image", "computer vision", "visual", "photo"},
		"video":        {"video processing", "temporal", "sequence", "motion"},
		"language":     {"natural language processing", "NLP", "text", "linguistic", "language model"},
		"chat":         {"chatbot", "conversational", "dialogue", "language model", "LLM"},
		"gpt":          {"language model", "transformer", "LLM", "generative", "GPT"},
		"llm":          {"large language model", "language model", "transformer", "GPT"},
		"face":         {"facial recognition", "face detection", "biometric", "portrait"},
		"object":       {"object detection", "instance segmentation", "recognition"},
		"self driving": {"autonomous vehicle", "self-driving", "autonomous driving", "vehicle control"},
		"car":          {"vehicle", "autonomous driving", "automotive"},
		"learn":        {"learning", "training", "optimization", "gradient"},
		"train":        {"training", "learning", "optimization", "supervised"},
		"predict":      {"prediction", "forecasting", "regression", "inference"},
		"classify":     {"classification", "categorization", "recognition"},
		"data":         {"dataset", "data mining", "data analysis", "training data"},
		"big data":     {"large-scale", "distributed", "scalable", "big data"},
		"database":     {"data management", "storage", "query", "index"},
		"hack":         {"security", "vulnerability", "exploit", "cybersecurity", "attack"},
		"secure":       {"security", "cryptography", "authentication", "privacy"},
		"crypto":       {"cryptography", "encryption", "blockchain", "security"},
		"web":          {"web application", "internet", "HTTP", "browser"},
		"internet":     {"network", "web", "online", "distributed"},
		"cloud":        {"cloud computing", "distributed", "scalable", "serverless"},
		"faster":       {"efficient", "optimization", "speed", "performance"},
		"better":       {"improved", "enhanced", "optimized", "superior"},
		"new":          {"novel", "recent", "emerging", "state-of-art"},
		"best":         {"optimal", "superior", "state-of-art", "benchmark"},
		"medical":      {"healthcare", "clinical", "diagnosis", "medical imaging", "biomedical"},
		"health":       {"healthcare", "medical", "clinical", "wellness"},
		"money":        {"financial", "economic", "market", "trading"},
		"game":         {"gaming", "game theory", "reinforcement learning", "strategy"},
		"music":        {"audio", "sound", "acoustic", "music generation"},
		"art":          {"generative art", "creative", "style transfer", "GAN"},
		"transformer":  {"attention", "BERT", "GPT", "self-attention", "encoder-decoder"},
		"bert":         {"language model", "transformer", "pre-training", "bidirectional"},
		"gan":          {"generative adversarial", "generator", "discriminator", "synthesis"},
		"cnn":          {"convolutional", "convnet", "image processing", "feature extraction"},
		"rnn":          {"recurrent", "LSTM", "GRU", "sequence", "temporal"},
		"lstm":         {"recurrent", "long short-term memory", "sequence modeling"},
		"research":     {"study", "investigation", "analysis", "experiment"},
		"survey":       {"review", "overview", "systematic review", "literature"},
		"tutorial":     {"introduction", "guide", "primer", "overview"},
		"benchmark":    {"evaluation", "comparison", "performance", "dataset"},

		// Academic term neighbourhoods.
		"neural network":              {"deep learning", "backpropagation", "activation"},
		"machine learning":            {"supervised", "unsupervised", "reinforcement"},
		"deep learning":               {"neural network", "CNN", "RNN", "transformer"},
		"reinforcement learning":      {"Q-learning", "policy", "reward", "agent"},
		"computer vision":             {"image processing", "object detection", "segmentation"},
		"natural language processing": {"NLP", "text mining", "language model"},
		"optimization":                {"gradient descent", "convergence", "loss function"},
	}
}

// PopularSearches lists query suggestions surfaced by the search API for an
// empty search box.
var PopularSearches = []string{
	"transformer neural networks",
	"deep learning computer vision",
	"reinforcement learning agents",
	"natural language processing",
	"generative adversarial networks",
	"object detection real-time",
	"medical image analysis",
	"autonomous driving perception",
	"graph neural networks",
	"federated learning privacy",
	"explainable AI interpretability",
	"zero-shot learning",
	"few-shot learning meta-learning",
	"self-supervised learning",
	"multimodal learning vision language",
}
