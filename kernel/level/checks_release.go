//go:build release

package level

// Checked enables the level discipline assertions.
const Checked = false
