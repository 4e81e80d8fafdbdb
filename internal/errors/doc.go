// Package errors provides structured, actionable error messages for the
// keenstore CLI.
//
// Errors carry a category, an optional short code, a detail paragraph,
// and a suggestion, and render for the terminal via Format:
//
//	err := errors.New(errors.CategoryConfig, "keenstore.json not found").
//	    WithCode("config_missing").
//	    WithSuggestion("Create keenstore.json or pass --config")
//
//	fmt.Fprint(os.Stderr, errors.Format(err))
//	// Output:
//	// ERROR config_missing: keenstore.json not found
//	//
//	//   Hint: Create keenstore.json or pass --config
//
// Categories are config (file loading and validation), cli (flag and
// argument problems), and validation (everything a Validate method
// rejects).
package errors
