package tracker

import "strings"

// Category is the click category reported for an element.
type Category string

const (
	CategoryLink        Category = "link"
	CategoryButton      Category = "button"
	CategoryFormElement Category = "form-element"
	CategoryGeneric     Category = "click"
)

// Element describes the target of a DOM event.
type Element struct {
	Tag       string
	ID        string
	ClassName string
	Text      string
	Attrs     map[string]string
	// FormID is the id of the enclosing form; InForm is true when there is one.
	InForm bool
	FormID string
}

func (e Element) attr(name string) string {
	return e.Attrs[name]
}

// Classify maps an element to its click category. Links and buttons win
// over form membership.
func Classify(tag string, inForm bool) Category {
	switch strings.ToLower(tag) {
	case "a":
		return CategoryLink
	case "button":
		return CategoryButton
	}
	if inForm {
		return CategoryFormElement
	}
	return CategoryGeneric
}

// isFormField reports whether focus on tag is a form field interaction.
func isFormField(tag string) bool {
	switch strings.ToLower(tag) {
	case "input", "textarea", "select":
		return true
	}
	return false
}
