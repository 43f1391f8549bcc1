package controller

import (
	"fmt"
	"sort"

	"golang.org/x/text/language"
)

// WebRequest describes the request an operation was invoked for
type WebRequest struct {
	URI    string
	Client string
	Method string
}

// String renders the request the way argument logging prints it
func (r *WebRequest) String() string {
	return fmt.Sprintf("WebRequest: uri=%s;client=%s", r.URI, r.Client)
}

// Binder builds the operation arguments for a request
type Binder func(locale language.Tag, request *WebRequest) []any

// Mapping maps a request path to an operation of UserController
type Mapping struct {
	Path      string
	Operation string
	Bind      Binder
}

// Args returns the arguments of the mapped operation
func (m Mapping) Args(locale language.Tag, request *WebRequest) []any {
	if m.Bind == nil {
		return nil
	}
	return m.Bind(locale, request)
}

func bindLocaleAndRequest(locale language.Tag, request *WebRequest) []any {
	return []any{locale, request}
}

var mappings = map[string]Mapping{
	"user_list":           {Path: "user_list", Operation: "UserList"},
	"user_list_before":    {Path: "user_list_before", Operation: "UserListBefore", Bind: bindLocaleAndRequest},
	"user_list_returning": {Path: "user_list_returning", Operation: "UserListAfterReturning"},
	"user_list_throwing":  {Path: "user_list_throwing", Operation: "UserListThrowing"},
	"user_list_clean":     {Path: "user_list_clean", Operation: "UserListAfterCleanUp"},
	"user_clean_throwing": {Path: "user_clean_throwing", Operation: "UserListAfterCleanUpException"},
	"user_list_runtime":   {Path: "user_list_runtime", Operation: "UserListRuntime"},
}

// Mappings returns every request mapping sorted by path
func Mappings() []Mapping {
	result := make([]Mapping, 0, len(mappings))
	for _, m := range mappings {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Path < result[j].Path
	})
	return result
}

// Lookup finds the mapping for path
func Lookup(path string) (Mapping, bool) {
	m, ok := mappings[path]
	return m, ok
}

// ResolveLocale picks the first tag of an Accept-Language value, or fallback
// when the header is empty or malformed
func ResolveLocale(acceptLanguage string, fallback language.Tag) language.Tag {
	if acceptLanguage == "" {
		return fallback
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return fallback
	}
	return tags[0]
}
