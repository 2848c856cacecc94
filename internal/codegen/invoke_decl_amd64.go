package codegen

// invokeRaw is implemented in invoke_amd64.s.
func invokeRaw(fn uintptr, args *[6]int64) int64
