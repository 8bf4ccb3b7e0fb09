package mcpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/ragmcp/internal/document"
)

func TestParseSchemeSuffix(t *testing.T) {
	assert.Equal(t, []string{"vector", "what is go"}, parseSchemeSuffix("retriever://vector/what is go"))
	assert.Equal(t, []string{"stats"}, parseSchemeSuffix("cache://stats"))
	assert.Nil(t, parseSchemeSuffix("cache://"))
	assert.Nil(t, parseSchemeSuffix("not-a-uri"))
}

func TestJSONResource_WrapsPrettyJSON(t *testing.T) {
	result, err := jsonResource("cache://stats", map[string]int{"entries": 3})
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "cache://stats", result.Contents[0].URI)
	assert.Equal(t, "application/json", result.Contents[0].MIMEType)
	assert.Contains(t, result.Contents[0].Text, "\"entries\": 3")
}

func TestStrategyCatalog_CoversEveryStrategyWithTraits(t *testing.T) {
	catalog := StrategyCatalog()
	require.Len(t, catalog, len(document.AllStrategies))
	for _, entry := range catalog {
		assert.NotEmpty(t, entry.Traits, "strategy %s should have a traits description", entry.Name)
	}
}
