package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	authorizationv1 "k8s.io/api/authorization/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

// reviewClient answers SubjectAccessReviews by allowing approvers to approve.
func reviewClient(t *testing.T, seen *[]authorizationv1.ResourceAttributes) *fake.Clientset {
	t.Helper()
	client := fake.NewSimpleClientset()
	client.PrependReactor("create", "subjectaccessreviews", func(action k8stesting.Action) (bool, runtime.Object, error) {
		review := action.(k8stesting.CreateAction).GetObject().(*authorizationv1.SubjectAccessReview)
		attrs := review.Spec.ResourceAttributes
		*seen = append(*seen, *attrs)
		allowed := attrs.Verb != VerbApprove
		for _, g := range review.Spec.Groups {
			if g == "approvers" {
				allowed = true
			}
		}
		review.Status.Allowed = allowed
		return true, review, nil
	})
	return client
}

func TestSARAuthorizer(t *testing.T) {
	var seen []authorizationv1.ResourceAttributes
	a := NewSARAuthorizer(reviewClient(t, &seen), "volunteer-admin")
	ctx := context.Background()

	ok, err := a.Authorize(ctx, AuthzRequest{User: "ann", Groups: []string{"approvers"}, Resource: ResourceOverrides, Verb: VerbApprove})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Authorize(ctx, AuthzRequest{User: "bob", Groups: []string{"coordinators"}, Resource: ResourceOverrides, Verb: VerbApprove})
	require.NoError(t, err)
	assert.False(t, ok)

	require.Len(t, seen, 2)
	assert.Equal(t, APIGroup, seen[0].Group)
	assert.Equal(t, "volunteer-admin", seen[0].Namespace)
	assert.Equal(t, ResourceOverrides, seen[0].Resource)
}

func TestSARAuthorizer_APIError(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("create", "subjectaccessreviews", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("apiserver unavailable")
	})
	_, err := NewSARAuthorizer(client, "").Authorize(context.Background(), AuthzRequest{User: "ann", Verb: VerbGet})
	assert.ErrorContains(t, err, "apiserver unavailable")
}

type countingAuthorizer struct {
	calls int
	err   error
}

func (c *countingAuthorizer) Authorize(_ context.Context, req AuthzRequest) (bool, error) {
	c.calls++
	return req.Verb == VerbGet, c.err
}

func TestCachedAuthorizer(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	inner := &countingAuthorizer{}
	c := NewCachedAuthorizer(inner, 5*time.Second)
	c.now = func() time.Time { return now }
	ctx := context.Background()
	get := AuthzRequest{User: "ann", Groups: []string{"staff"}, Resource: ResourceOverrides, Verb: VerbGet}

	for range 3 {
		ok, err := c.Authorize(ctx, get)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, inner.calls)

	ok, err := c.Authorize(ctx, AuthzRequest{User: "ann", Groups: []string{"staff"}, Resource: ResourceOverrides, Verb: VerbDelete})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, inner.calls)

	now = now.Add(6 * time.Second)
	_, _ = c.Authorize(ctx, get)
	assert.Equal(t, 3, inner.calls)
}

func TestCachedAuthorizer_ErrorsAreNotCached(t *testing.T) {
	inner := &countingAuthorizer{err: errors.New("boom")}
	c := NewCachedAuthorizer(inner, 0)
	req := AuthzRequest{User: "ann", Verb: VerbGet}

	_, err := c.Authorize(context.Background(), req)
	require.Error(t, err)
	inner.err = nil
	ok, err := c.Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, DefaultDecisionTTL, c.ttl)
}

func TestNewAuthorizer_SAR(t *testing.T) {
	a, err := NewAuthorizer(AuthzModeSAR, Options{Client: fake.NewSimpleClientset(), Namespace: "ns"})
	require.NoError(t, err)
	assert.IsType(t, &CachedAuthorizer{}, a)
}
