package imaging

// Normalizer holds the two independent image operations applied between
// fetch and bundling. Both receive and return opaque byte buffers; neither
// touches the filesystem.
type Normalizer interface {
	// Flatten composites transparent pixels onto an opaque white canvas.
	// Fully opaque inputs pass through byte-identical with changed=false.
	Flatten(input []byte) (out []byte, changed bool, err error)

	// ConvertWebP re-encodes the image as PNG. With flatten enabled a
	// transparent image is composited onto white first; otherwise the alpha
	// channel is preserved.
	ConvertWebP(input []byte, flatten bool) ([]byte, error)
}

func New() (Normalizer, error) {
	return newNormalizer()
}

const flattenJPEGQuality = 95
