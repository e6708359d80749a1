package costsource_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/costsource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFilter_Empty(t *testing.T) {
	vocab := costsource.DefaultServiceVocabulary()
	assert.Nil(t, costsource.BuildFilter(nil, nil, vocab))
	assert.Nil(t, costsource.BuildFilter([]string{}, map[string][]string{}, vocab))
	assert.Nil(t, costsource.BuildFilter(nil, map[string][]string{"env": {}}, vocab))
}

func TestBuildFilter_SingleServiceFilterIsUnwrapped(t *testing.T) {
	f := costsource.BuildFilter([]string{"EC2", "Lambda", "Amazon Athena"}, nil, costsource.DefaultServiceVocabulary())
	require.NotNil(t, f)
	assert.Empty(t, f.And)
	require.NotNil(t, f.Dimension)
	assert.Equal(t, costsource.DimensionService, f.Dimension.Key)
	assert.Equal(t, []string{
		"Amazon Elastic Compute Cloud - Compute",
		"AWS Lambda",
		"Amazon Athena",
	}, f.Dimension.Values)
}

func TestBuildFilter_SingleTagIsUnwrapped(t *testing.T) {
	f := costsource.BuildFilter(nil, map[string][]string{"team": {"a", "b"}}, costsource.DefaultServiceVocabulary())
	require.NotNil(t, f)
	require.NotNil(t, f.Tag)
	assert.Equal(t, "team", f.Tag.Key)
	assert.Equal(t, []string{"a", "b"}, f.Tag.Values)
}

func TestBuildFilter_CombinesWithAnd(t *testing.T) {
	f := costsource.BuildFilter(
		[]string{"S3"},
		map[string][]string{"team": {"data"}, "env": {"prod", "staging"}},
		costsource.DefaultServiceVocabulary(),
	)
	require.NotNil(t, f)
	require.Len(t, f.And, 3)

	require.NotNil(t, f.And[0].Dimension)
	assert.Equal(t, []string{"Amazon Simple Storage Service"}, f.And[0].Dimension.Values)

	// Tag keys are emitted in sorted order.
	require.NotNil(t, f.And[1].Tag)
	assert.Equal(t, "env", f.And[1].Tag.Key)
	assert.Equal(t, []string{"prod", "staging"}, f.And[1].Tag.Values)
	require.NotNil(t, f.And[2].Tag)
	assert.Equal(t, "team", f.And[2].Tag.Key)
}

func TestServiceVocabulary_Resolve(t *testing.T) {
	vocab := costsource.DefaultServiceVocabulary()
	assert.Equal(t, "Amazon API Gateway", vocab.Resolve("API Gateway"))
	assert.Equal(t, "Amazon DynamoDB", vocab.Resolve("DynamoDB"))
	assert.Equal(t, "Something Else", vocab.Resolve("Something Else"))
}

func TestLoadServiceVocabulary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	data := []byte(`services:
  EKS: Amazon Elastic Container Service for Kubernetes
  EC2: EC2 - Other
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	vocab, err := costsource.LoadServiceVocabulary(path)
	require.NoError(t, err)
	assert.Equal(t, "Amazon Elastic Container Service for Kubernetes", vocab.Resolve("EKS"))
	assert.Equal(t, "EC2 - Other", vocab.Resolve("EC2"))
	assert.Equal(t, "AWS Lambda", vocab.Resolve("Lambda"))
}

func TestLoadServiceVocabulary_Errors(t *testing.T) {
	_, err := costsource.LoadServiceVocabulary(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = costsource.LoadServiceVocabularyFromBytes([]byte("services: [not, a, map]"))
	assert.Error(t, err)

	_, err = costsource.LoadServiceVocabularyFromBytes([]byte("services:\n  EKS: \"\"\n"))
	assert.Error(t, err)
}
