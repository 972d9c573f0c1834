package models

import (
	"encoding/json"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestNewDetectionID(t *testing.T) {
	id := NewDetectionID()
	assert.Regexp(t, hexID, id)
}

func TestNewDetectionIDConcurrentUnique(t *testing.T) {
	const n = 1000
	ids := make(chan string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- NewDetectionID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestNewDetectionRecord(t *testing.T) {
	before := time.Now().UTC()
	rec := NewDetectionRecord("cat.jpg", 640, 480, 0.25, 0.042, nil)

	assert.Regexp(t, hexID, rec.DetectionID)
	assert.Equal(t, 0, rec.TotalObjects)
	assert.NotNil(t, rec.Detections)
	assert.Empty(t, rec.Detections)
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())
	assert.False(t, rec.CreatedAt.Before(before.Truncate(time.Microsecond)))
	assert.Zero(t, rec.CreatedAt.Nanosecond()%1000)

	dets := []Detection{
		{ClassID: 0, ClassName: "person", Confidence: 0.9, BBox: BBox{1, 2, 3, 4}},
		{ClassID: 2, ClassName: "car", Confidence: 0.5, BBox: BBox{5, 6, 7, 8}},
	}
	rec = NewDetectionRecord("street.png", 100, 50, 0.3, 0.1, dets)
	assert.Equal(t, len(rec.Detections), rec.TotalObjects)

	sum := rec.Summary()
	assert.Equal(t, rec.DetectionID, sum.DetectionID)
	assert.Equal(t, 2, sum.TotalObjects)
	assert.Equal(t, rec.CreatedAt, sum.CreatedAt)
}

func TestBBoxJSON(t *testing.T) {
	det := Detection{ClassID: 16, ClassName: "dog", Confidence: 0.5, BBox: BBox{X1: 1.5, Y1: 2, X2: 30.25, Y2: 40}}

	data, err := json.Marshal(det)
	require.NoError(t, err)
	assert.JSONEq(t, `{"class_id":16,"class_name":"dog","confidence":0.5,"bbox":[1.5,2,30.25,40]}`, string(data))

	var got Detection
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, det, got)
}

func TestBBoxUnmarshalRejectsWrongLength(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"too short", `[1,2,3]`},
		{"too long", `[1,2,3,4,5]`},
		{"object", `{"x1":1,"y1":2,"x2":3,"y2":4}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b BBox
			assert.Error(t, json.Unmarshal([]byte(tt.input), &b))
		})
	}
}
