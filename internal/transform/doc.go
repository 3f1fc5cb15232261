// Package transform normalizes one chapter's markup events into a clean,
// verse-anchored HTML fragment.
//
// Every filter pulls from the one before it, so a chapter is processed in
// a single demand-driven pass. The KJV chain runs, closest to the parser
// first:
//  1. Attach chapter metadata
//  2. Track the open-element stack
//  3. Keep only the contents of <body>
//  4. Strip the leading marker character from text
//  5. Strip popup, tnav, copyright and chapterlabel regions
//  6. Promote div.q to blockquote and div.p to p
//  7. Rename classes (footnote, notemark, verse, main)
//  8. Translate verse anchors and links to global ids
//  9. Inject the chapter heading after the kjv container opens
//  10. Wrap each verse in span.verse
//  11. Check the result is still properly nested
package transform
