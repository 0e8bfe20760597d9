package translate

import "encoding/json"

// EstimateTextTokens approximates the token count of a text fragment at
// four characters per token, with a floor of one for non-empty text.
func EstimateTextTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// CountRequestTokens estimates the input tokens a messages request will
// consume. The estimate covers system prompts, message content, and tool
// definitions; it never fails, returning at least one token.
func CountRequestTokens(req *MessagesRequest) int {
	total := 0

	for _, s := range req.System {
		total += EstimateTextTokens(s)
	}

	for _, msg := range req.Messages {
		total += EstimateTextTokens(msg.Content.Text)
		for _, block := range msg.Content.Blocks {
			total += EstimateTextTokens(block.Text)
			total += EstimateTextTokens(block.Name)
			total += EstimateTextTokens(block.ResultText())
			if block.Input != nil {
				if raw, err := json.Marshal(block.Input); err == nil {
					total += EstimateTextTokens(string(raw))
				}
			}
		}
	}

	for _, tool := range req.Tools {
		total += EstimateTextTokens(tool.Name)
		total += EstimateTextTokens(tool.Description)
		if tool.InputSchema != nil {
			if raw, err := json.Marshal(tool.InputSchema); err == nil {
				total += EstimateTextTokens(string(raw))
			}
		}
	}

	if total < 1 {
		total = 1
	}
	return total
}
