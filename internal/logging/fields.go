package logging

import (
	"fmt"
	"sort"
	"strings"
)

// countVerbs returns the number of printf verbs in message, ignoring "%%".
func countVerbs(message string) int {
	n := 0
	for i := 0; i < len(message)-1; i++ {
		if message[i] != '%' {
			continue
		}
		if message[i+1] == '%' {
			i++
			continue
		}
		n++
	}
	return n
}

// splitArgs formats message with as many args as it has verbs and returns
// the rest as fields. A trailing key without a value is stored as "extra".
func splitArgs(message string, args []interface{}) (string, map[string]interface{}) {
	if len(args) == 0 {
		return message, nil
	}

	verbs := countVerbs(message)
	if verbs > 0 && len(args) >= verbs {
		message = fmt.Sprintf(message, args[:verbs]...)
		args = args[verbs:]
	}
	if len(args) == 0 {
		return message, nil
	}

	fields := make(map[string]interface{}, len(args)/2+1)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		fields[key] = args[i+1]
	}
	if len(args)%2 == 1 {
		fields["extra"] = args[len(args)-1]
	}
	return message, fields
}

// formatFields renders fields as sorted key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", k, fields[k])
	}
	return b.String()
}
