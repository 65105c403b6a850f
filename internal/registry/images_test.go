package registry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyImagesShapes(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		shape ImageShape
	}{
		{"null", `null`, ShapeNone},
		{"empty", ``, ShapeNone},
		{"list", `[{"url":"https://x/a.jpg","key":"a"}]`, ShapeList},
		{"encoded", `"[{\"url\":\"https://x/a.jpg\",\"key\":\"a\"}]"`, ShapeEncodedList},
		{"urls", `{"urls":["https://x/a.jpg"]}`, ShapeURLs},
		{"number", `42`, ShapeInvalid},
		{"object without urls", `{"foo":1}`, ShapeInvalid},
		{"broken json", `[{"url":`, ShapeInvalid},
		{"encoded garbage", `"not json"`, ShapeInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.shape, ClassifyImages([]byte(tc.raw)).Shape)
		})
	}
}

func TestNormalizeImagesAllShapesAgree(t *testing.T) {
	list := `[{"url":"https://img/1.jpg","key":"k1","width":640,"height":480},"https://img/2.jpg",{"url":"https://img/3.jpg","key":"k3"}]`
	encoded, err := json.Marshal(list)
	require.NoError(t, err)
	urls := `{"urls":[{"url":"https://img/1.jpg","key":"k1","width":640,"height":480},"https://img/2.jpg",{"url":"https://img/3.jpg","key":"k3"}]}`

	fromList := NormalizeImages([]byte(list))
	fromEncoded := NormalizeImages(encoded)
	fromURLs := NormalizeImages([]byte(urls))

	require.Len(t, fromList, 3)
	assert.Equal(t, fromList, fromEncoded)
	assert.Equal(t, fromList, fromURLs)
	assert.Equal(t, []string{"https://img/1.jpg", "https://img/2.jpg", "https://img/3.jpg"}, fromList.URLs())
	require.NotNil(t, fromList[0].Width)
	assert.Equal(t, 640, *fromList[0].Width)
}

func TestNormalizeImagesMalformedIsEmpty(t *testing.T) {
	for _, raw := range []string{`{`, `true`, `"[oops"`, `{"urls":5}`} {
		got := NormalizeImages([]byte(raw))
		assert.NotNil(t, got, raw)
		assert.Empty(t, got, raw)
	}
	assert.Nil(t, NormalizeImages([]byte("null")))
}

func TestImagesEntriesWithoutURLAreDropped(t *testing.T) {
	got := NormalizeImages([]byte(`[{"key":"orphan"}, 7, "", "https://ok/x.png"]`))
	assert.Equal(t, Images{{URL: "https://ok/x.png"}}, got)
}

func TestImagesSQLRoundTrip(t *testing.T) {
	var im Images
	v, err := im.Value()
	require.NoError(t, err)
	assert.Nil(t, v, "nil images are stored as NULL")

	im = Images{{URL: "https://a/b.jpg", Key: "b"}}
	v, err = im.Value()
	require.NoError(t, err)

	var back Images
	require.NoError(t, back.Scan([]byte(v.(string))))
	assert.Equal(t, im, back)

	require.NoError(t, back.Scan(nil))
	assert.Nil(t, back)

	assert.Error(t, back.Scan(12))
}

func TestImagesJSONNullVersusEmpty(t *testing.T) {
	b, err := json.Marshal(Pledge{Images: nil})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"images":null`)

	b, err = json.Marshal(Pledge{Images: Images{}})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"images":[]`)
}
