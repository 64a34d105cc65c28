// Package tables registers all destination table definitions with the core
// registry. Import it for its side effects:
//
//	import _ "github.com/JonMunkholm/behavioretl/internal/core/tables"
package tables

func init() {
	registerUserBehavior()
}
