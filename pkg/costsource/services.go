package costsource

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServiceVocabulary maps short service names used in budgets to the billing
// API's service dimension values.
type ServiceVocabulary map[string]string

// DefaultServiceVocabulary returns the built-in short name mapping.
func DefaultServiceVocabulary() ServiceVocabulary {
	return ServiceVocabulary{
		"EC2":         "Amazon Elastic Compute Cloud - Compute",
		"S3":          "Amazon Simple Storage Service",
		"Lambda":      "AWS Lambda",
		"RDS":         "Amazon Relational Database Service",
		"DynamoDB":    "Amazon DynamoDB",
		"CloudFront":  "Amazon CloudFront",
		"API Gateway": "Amazon API Gateway",
	}
}

// Resolve returns the billing name for a short service name. Unknown names
// are passed through unchanged.
func (v ServiceVocabulary) Resolve(name string) string {
	if full, ok := v[name]; ok {
		return full
	}
	return name
}

type vocabularyFile struct {
	Services map[string]string `yaml:"services"`
}

// LoadServiceVocabulary reads a YAML file of additional service mappings and
// merges it over the defaults.
func LoadServiceVocabulary(path string) (ServiceVocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service vocabulary %s: %w", path, err)
	}

	vocab, err := LoadServiceVocabularyFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("service vocabulary %s: %w", path, err)
	}
	return vocab, nil
}

// LoadServiceVocabularyFromBytes parses YAML service mappings from raw bytes.
func LoadServiceVocabularyFromBytes(data []byte) (ServiceVocabulary, error) {
	var f vocabularyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse service vocabulary: %w", err)
	}

	vocab := DefaultServiceVocabulary()
	for short, full := range f.Services {
		if short == "" || full == "" {
			return nil, fmt.Errorf("empty service mapping %q: %q", short, full)
		}
		vocab[short] = full
	}
	return vocab, nil
}
