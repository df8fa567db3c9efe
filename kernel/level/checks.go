//go:build !release

package level

// Checked enables the level discipline assertions. Release builds strip
// them, after which a violation is undefined behaviour instead of a halt.
const Checked = true
