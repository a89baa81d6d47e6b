//go:build windows

package common

const lineEnding = "\r\n"
