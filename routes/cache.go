package routes

import (
	"strings"

	"gif-proxy/validation"
)

func cacheKey(url string, params *validation.ImageContext) string {
	var builder strings.Builder
	builder.WriteString(url)
	builder.WriteString(";")
	builder.WriteString(params.String())
	return builder.String()
}
