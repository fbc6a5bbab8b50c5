package tools

import (
	"encoding/json"
	"strings"
)

/************************************************
/**** MARK: MESSAGE PLACEHOLDERS ****/
/************************************************/
const PLACEHOLDER_BRANCH = "###BRANCH###"
const PLACEHOLDER_MONTH = "###MONTH###"
const PLACEHOLDER_BALANCE = "###BALANCE###"
const PLACEHOLDER_DATE = "###DATE###"
const PLACEHOLDER_USER_ID = "###USER_ID###"

// RenderPlaceholders substitutes tokens in every string leaf of a JSON
// message, so that placeholders buried inside flex bubble contents are
// rendered too. Messages that fail to decode are returned unchanged.
func RenderPlaceholders(message json.RawMessage, values map[string]string) json.RawMessage {
	if len(values) == 0 || !strings.Contains(string(message), "###") {
		return message
	}

	var tree any
	if err := json.Unmarshal(message, &tree); err != nil {
		return message
	}

	rendered, err := json.Marshal(renderNode(tree, values))
	if err != nil {
		return message
	}
	return rendered
}

func renderNode(node any, values map[string]string) any {
	switch v := node.(type) {
	case string:
		for token, value := range values {
			v = strings.ReplaceAll(v, token, value)
		}
		return v
	case map[string]any:
		for k, child := range v {
			v[k] = renderNode(child, values)
		}
		return v
	case []any:
		for i, child := range v {
			v[i] = renderNode(child, values)
		}
		return v
	default:
		return node
	}
}
