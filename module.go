package jsbridge

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// moduleExports is the global the transformed module stores its namespace
// under until the trailer below takes it back.
const moduleExports = "__hostbridge_exports"

// moduleTrailer makes the module namespace the completion value of the
// script and removes the temporary global.
const moduleTrailer = "\n;(function(){var m=globalThis." + moduleExports +
	";delete globalThis." + moduleExports + ";return m;})()\n"

// transformModule rewrites ES module source into a script with esbuild. The
// completion value of the result is the module namespace object.
func transformModule(source, name string) (string, error) {
	result := api.Transform(source, api.TransformOptions{
		Format:     api.FormatIIFE,
		GlobalName: "globalThis." + moduleExports,
		Target:     api.ESNext,
		Sourcefile: name,
	})
	if len(result.Errors) > 0 {
		return "", moduleError(name, result.Errors)
	}
	return string(result.Code) + moduleTrailer, nil
}

func moduleError(name string, msgs []api.Message) error {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			parts = append(parts, fmt.Sprintf("%s:%d:%d: %s", name, m.Location.Line, m.Location.Column, m.Text))
		} else {
			parts = append(parts, m.Text)
		}
	}
	return fmt.Errorf("%s", strings.Join(parts, "; "))
}
