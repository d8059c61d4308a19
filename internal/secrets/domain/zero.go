package domain

// Zero wipes sensitive material from a buffer in place. Best effort only;
// the runtime may hold copies elsewhere.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
