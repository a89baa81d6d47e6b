package common

// PanicIfErr captures the common logic of failing fast on an error that
// should never occur outside a programmer mistake (spec.md §7 "Fatal
// programmer error" category) — e.g. failing to open the ring's own log file.
func PanicIfErr(err error) {
	if err != nil {
		panic(err)
	}
}
