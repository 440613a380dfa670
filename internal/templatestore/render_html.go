package templatestore

import "html/template"

// parseHTML rewrites notifyhub's {{var}} placeholder syntax into the
// {{.var}} field-access syntax html/template expects against a
// map[string]interface{} data value, then parses it.
func parseHTML(name, body string) (*template.Template, error) {
	rewritten := varPattern.ReplaceAllString(body, "{{.$1}}")
	return template.New(name).Parse(rewritten)
}
