package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrefixStrategy(t *testing.T) {
	assert.Equal(t, PrefixNomic, ParsePrefixStrategy("nomic"))
	assert.Equal(t, PrefixE5Instruct, ParsePrefixStrategy("e5_instruct"))
	assert.Equal(t, PrefixNone, ParsePrefixStrategy("unknown"))
	assert.Equal(t, PrefixNone, ParsePrefixStrategy(""))
}

func TestPrefixStrategy_Apply_Nomic(t *testing.T) {
	assert.Equal(t, "search_document: diamond sword", PrefixNomic.Apply("diamond sword", TaskRetrievalDocument))
	assert.Equal(t, "search_query: diamond sword", PrefixNomic.Apply("diamond sword", TaskRetrievalQuery))
	assert.Equal(t, "clustering: x", PrefixNomic.Apply("x", TaskClustering))
}

func TestPrefixStrategy_Apply_E5Instruct(t *testing.T) {
	withInstruction := PrefixE5Instruct.Apply("diamond sword", TaskRetrievalQuery)
	assert.Contains(t, withInstruction, "Instruct:")
	assert.Contains(t, withInstruction, "diamond sword")

	assert.Equal(t, "diamond sword", PrefixE5Instruct.Apply("diamond sword", TaskRetrievalDocument))
}

func TestPrefixStrategy_Apply_None(t *testing.T) {
	assert.Equal(t, "diamond sword", PrefixNone.Apply("diamond sword", TaskRetrievalQuery))
}
