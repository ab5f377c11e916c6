package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKindNames(t *testing.T) {
	for _, k := range []EventKind{EventInitialLoad, EventLoginButtonClicked, EventCallbackReceived} {
		parsed, err := ParseEventKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseEventKind("nope")
	assert.Error(t, err)
	assert.Equal(t, "event(9)", EventKind(9).String())
}

func TestEffectKindClassification(t *testing.T) {
	assert.True(t, EffectHttp.Continuing())
	assert.True(t, EffectKeyValue.Continuing())
	assert.False(t, EffectRender.Continuing())
	assert.False(t, EffectRedirect.Continuing())
	assert.True(t, EffectKeyValue.Known())
	assert.False(t, EffectKind(4).Known())
}

func TestEffectDescribe(t *testing.T) {
	assert.Equal(t, "get github_tokens", KeyValue(Get("github_tokens")).Describe())
	assert.Equal(t, "list_keys film:*", KeyValue(ListKeys("film:")).Describe())
	assert.Equal(t, "list_keys", KeyValue(ListKeys("")).Describe())
	assert.Equal(t, "GET https://api.github.com/user", HTTP(HttpRequest{Method: "get", URL: "https://api.github.com/user"}).Describe())
	assert.Equal(t, "https://x", Redirect("https://x").Describe())
	assert.Equal(t, "", Render().Describe())
}

func TestResponseFailed(t *testing.T) {
	ok := Response{Kind: EffectKeyValue, KeyValue: &KeyValueResult{Response: &KeyValueResponse{Op: KeyValueSet}}}
	assert.False(t, ok.Failed())

	failed := Response{Kind: EffectHttp, HTTP: &HttpResult{Err: &HttpError{Kind: HttpErrorTimeout}}}
	assert.True(t, failed.Failed())

	// A 500 is still a successful round trip.
	status := Response{Kind: EffectHttp, HTTP: &HttpResult{Response: &HttpResponse{Status: 500}}}
	assert.False(t, status.Failed())
}

func TestParseRating(t *testing.T) {
	r, err := ParseRating(" Very Good ")
	require.NoError(t, err)
	assert.Equal(t, RatingVeryGood, r)

	_, err = ParseRating("")
	assert.Error(t, err)
	_, err = ParseRating("superb")
	assert.Error(t, err)
}

func TestViewModelClone(t *testing.T) {
	v := &ViewModel{
		Log:      []LogEntry{{Level: LogInfo, Message: "a"}},
		UserInfo: &UserInfo{Name: "n"},
	}
	c := v.Clone()
	c.Log[0].Message = "b"
	c.UserInfo.Name = "m"

	assert.Equal(t, "a", v.Log[0].Message)
	assert.Equal(t, "n", v.UserInfo.Name)
	assert.NotNil(t, (*ViewModel)(nil).Clone())
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "http timeout", (&HttpError{Kind: HttpErrorTimeout}).Error())
	assert.Equal(t, "key-value other: unknown op", (&KeyValueError{Kind: KeyValueErrorOther, Message: "unknown op"}).Error())
}
