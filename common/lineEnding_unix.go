//go:build !windows

package common

const lineEnding = "\n"
