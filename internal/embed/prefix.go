package embed

// PrefixStrategy encodes how a local model's input text is prefixed per
// task type, as a closed variant rather than string-matching on model
// name at call sites (§9 "Task-prefix strategy").
type PrefixStrategy int

const (
	PrefixNone PrefixStrategy = iota
	PrefixNomic
	PrefixE5Instruct
)

// ParsePrefixStrategy maps a config string to a PrefixStrategy, defaulting
// to PrefixNone for unrecognized values.
func ParsePrefixStrategy(s string) PrefixStrategy {
	switch s {
	case "nomic":
		return PrefixNomic
	case "e5_instruct":
		return PrefixE5Instruct
	default:
		return PrefixNone
	}
}

const e5QueryInstruction = "Instruct: Given a search query, retrieve the item description that best answers it.\nQuery: "

// Apply prefixes text according to the strategy and task type (§4.3).
func (s PrefixStrategy) Apply(text string, task TaskType) string {
	switch s {
	case PrefixNomic:
		switch task {
		case TaskRetrievalDocument:
			return "search_document: " + text
		case TaskRetrievalQuery:
			return "search_query: " + text
		case TaskClustering:
			return "clustering: " + text
		case TaskClassification:
			return "classification: " + text
		default:
			return text
		}
	case PrefixE5Instruct:
		// Only queries get the long instruct preamble (§4.3).
		if task == TaskRetrievalQuery {
			return e5QueryInstruction + text
		}
		return text
	default:
		return text
	}
}
