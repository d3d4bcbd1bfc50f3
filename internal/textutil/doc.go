// Package textutil provides word splitting and bag-of-words similarity used to
// match free text (issue titles, catalog rows) against device record ids.
//
// Words lowercases text and splits on anything that is not a letter or digit,
// so "wall_switch_2gang" yields wall, switch, 2gang. Tokenize additionally
// drops words shorter than three characters. Fingerprints are term-frequency
// vectors that can be reweighted with IDF statistics gathered over a corpus of
// record ids.
package textutil
