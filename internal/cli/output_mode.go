package cli

type outputMode int

const (
	outputModeText outputMode = iota
	outputModeJSON
	outputModeYAML
)

func parseOutputMode(s string) (outputMode, error) {
	switch s {
	case "", "text":
		return outputModeText, nil
	case "json":
		return outputModeJSON, nil
	case "yaml", "yml":
		return outputModeYAML, nil
	default:
		return outputModeText, usageErrorf("unknown format %q (want text, json or yaml)", s)
	}
}
