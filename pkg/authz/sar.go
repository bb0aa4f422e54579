package authz

import (
	"context"
	"fmt"

	authorizationv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// APIGroup is the RBAC API group override permissions are granted under,
// e.g. verbs: [approve] on resource overrides.volunteer-admin.soi.ie.
const APIGroup = "volunteer-admin.soi.ie"

// SARAuthorizer delegates decisions to the Kubernetes API server through
// SubjectAccessReview, so override permissions live in cluster RBAC.
type SARAuthorizer struct {
	client    kubernetes.Interface
	namespace string
}

// NewSARAuthorizer returns an authorizer that checks access in namespace.
// An empty namespace asks for cluster-scoped access.
func NewSARAuthorizer(client kubernetes.Interface, namespace string) *SARAuthorizer {
	return &SARAuthorizer{client: client, namespace: namespace}
}

// Authorize creates a SubjectAccessReview for the request.
func (s *SARAuthorizer) Authorize(ctx context.Context, req AuthzRequest) (bool, error) {
	review := &authorizationv1.SubjectAccessReview{
		Spec: authorizationv1.SubjectAccessReviewSpec{
			User:   req.User,
			Groups: req.Groups,
			ResourceAttributes: &authorizationv1.ResourceAttributes{
				Group:     APIGroup,
				Resource:  req.Resource,
				Verb:      req.Verb,
				Namespace: s.namespace,
			},
		},
	}
	out, err := s.client.AuthorizationV1().SubjectAccessReviews().Create(ctx, review, metav1.CreateOptions{})
	if err != nil {
		return false, fmt.Errorf("subject access review: %w", err)
	}
	return out.Status.Allowed, nil
}
