package sandbox

// DefaultRules holds the deny tokens that are always in force.
// A rules file can add to these but never remove them.
var DefaultRules = Rules{
	PathTokens: []string{
		"..",
		"/etc",
		"/var",
		"/home",
	},
	DestructiveWords: []string{
		"delete",
		"remove",
	},
}
