// Package pdfimages extracts raster images embedded in PDF documents.
//
// The pipeline walks a page's content stream to discover Image
// XObjects and inline images together with their placement, then
// decodes each image's filter chain, color space, decode array and
// masks into device-space pixels:
//
//	doc, err := parser.Open("report.pdf")
//	if err != nil { ... }
//	defer doc.Close()
//
//	records, err := extractor.ImagesByPage(doc, 1)
//	img, err := extractor.Decode(doc, records[0], builder.RendererPro)
//
// See the extractor, builder and contentstream packages for the
// public surface.
package pdfimages
