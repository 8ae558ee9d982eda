package simerrors

// ExitCode maps a Context.Run error to the CLI's exit status: 0 success,
// 1 unhandled error, 2 invalid configuration, 3 unresolved/cyclic
// dependency.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch err.(type) {
	case *ConfigurationError:
		return 2
	case *UnresolvedDependencyError, *CyclicDependencyError:
		return 3
	default:
		return 1
	}
}
