package transformers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/moyoez/multiparter/adapters"
	"github.com/moyoez/multiparter/multiparter"
	"github.com/moyoez/multiparter/source"
	"github.com/moyoez/multiparter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type truncatedStream struct {
	io.Reader
}

func (truncatedStream) Close() error    { return nil }
func (truncatedStream) Truncated() bool { return true }

func part(content string) *types.File {
	return &types.File{
		Name:     "upload",
		Stream:   io.NopCloser(strings.NewReader(content)),
		Encoding: "7bit",
		MimeType: "text/plain",
		Filename: "notes.txt",
	}
}

func unzstd(t *testing.T, data []byte) string {
	t.Helper()
	dec, err := zstd.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer dec.Close()
	out, err := io.ReadAll(dec)
	require.NoError(t, err)
	return string(out)
}

func TestRename(t *testing.T) {
	t.Parallel()

	in := part("hello")
	out, err := Rename(func(string) string { return "foo.bar" }).TransformFile(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "foo.bar", out.Filename)
	assert.Equal(t, "notes.txt", in.Filename, "input part is left alone")
	assert.Equal(t, in.Stream, out.Stream)
}

func TestZstd(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("compress me ", 1000)
	out, err := Zstd().TransformFile(context.Background(), part(content))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt.zst", out.Filename)
	assert.Equal(t, ZstdMimeType, out.MimeType)

	compressed, err := io.ReadAll(out.Stream)
	require.NoError(t, err)
	require.NoError(t, out.Stream.Close())
	assert.Less(t, len(compressed), len(content))
	assert.Equal(t, content, unzstd(t, compressed))
}

func TestZstd_CloseBeforeRead(t *testing.T) {
	t.Parallel()

	out, err := Zstd().TransformFile(context.Background(), part(strings.Repeat("x", 1<<20)))
	require.NoError(t, err)
	require.NoError(t, out.Stream.Close())
	require.NoError(t, out.Stream.Close())
}

func TestZstd_ForwardsTruncated(t *testing.T) {
	t.Parallel()

	in := part("abc")
	in.Stream = truncatedStream{strings.NewReader("abc")}
	out, err := Zstd().TransformFile(context.Background(), in)
	require.NoError(t, err)
	defer out.Stream.Close()
	assert.True(t, out.Truncated())
}

func TestChain(t *testing.T) {
	t.Parallel()

	chain := Chain(Rename(strings.ToUpper), nil, Zstd())
	out, err := chain.TransformFile(context.Background(), part("chained"))
	require.NoError(t, err)
	assert.Equal(t, "NOTES.TXT.zst", out.Filename)

	data, err := io.ReadAll(out.Stream)
	require.NoError(t, err)
	require.NoError(t, out.Stream.Close())
	assert.Equal(t, "chained", unzstd(t, data))

	boom := errors.New("nope")
	failing := multiparter.TransformerFunc(func(context.Context, *types.File) (*types.File, error) { return nil, boom })
	_, err = Chain(failing, Zstd()).TransformFile(context.Background(), part("x"))
	assert.ErrorIs(t, err, boom)
}

func TestZstdInSession(t *testing.T) {
	t.Parallel()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="upload"; filename="log.txt"`)
	h.Set("Content-Type", "text/plain")
	pw, err := w.CreatePart(h)
	require.NoError(t, err)
	content := strings.Repeat("line\n", 500)
	_, err = io.WriteString(pw, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	src, err := source.NewMultipart(&body, w.FormDataContentType(), types.DefaultLimits())
	require.NoError(t, err)
	res, err := multiparter.Parse[adapters.BufferedFile](context.Background(), src, adapters.NewBuffer(), multiparter.WithTransformer(Zstd()))
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "log.txt.zst", res.Files[0].Filename)
	assert.Equal(t, content, unzstd(t, res.Files[0].Buffer))
}
