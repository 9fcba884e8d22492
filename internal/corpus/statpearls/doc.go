// Package statpearls parses an extracted StatPearls archive (NCBI
// Bookshelf JATS XML, one .nxml file per article) into document parts.
//
// Each article contributes one part per top-level section. Part ids
// are derived from the article id and section id, so repeated parses
// of the same archive always produce identical ids. Only articles
// published under CC-BY-NC-ND-4.0 are accepted; everything else is
// skipped and reported.
package statpearls
