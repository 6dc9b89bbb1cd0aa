// Package parser provides the normalizers used while scraping application
// history pages: localized numbers ("¥5,000円"), zero-padded "M/D" dates and
// the handshake-ticket product label grammar
//
//	<member>【<M/D> <venue> 第<N>部】... <N><st|nd|rd|th> <シングル|アルバム>
//
// Full-width alphanumerics are folded before matching.
package parser
