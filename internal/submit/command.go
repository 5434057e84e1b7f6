package submit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"
)

// CommandData is the value the command template is executed against.
type CommandData struct {
	Name     string
	Night    int
	JobDesc  string
	ObsType  string
	ExpIDs   []int
	TileID   int
	Cameras  string
	BadAmps  string
	JointFit bool
}

var commandFuncs = template.FuncMap{
	"join": func(ids []int, sep string) string {
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.Itoa(id)
		}
		return strings.Join(parts, sep)
	},
}

// ParseCommandTemplate compiles a job command template. Unknown fields are
// errors at render time.
func ParseCommandTemplate(text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("command template is empty")
	}
	tmpl, err := template.New("command").Funcs(commandFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse command template: %w", err)
	}
	return tmpl, nil
}

func renderCommand(tmpl *template.Template, data CommandData) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render command: %w", err)
	}
	command := strings.Join(strings.Fields(b.String()), " ")
	if command == "" {
		return "", errors.New("render command: template produced an empty command")
	}
	return command, nil
}
