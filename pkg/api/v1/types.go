package v1

import metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

type DefaultReleaseSpec struct {
	// Package is the baseline package whose candidate version is
	// inspected. Defaults to base-files.
	Package string `json:"package,omitempty"`
	// Archives overrides the recognised release channels.
	Archives []string `json:"archives,omitempty"`
	// Architecture of the binary package lists.
	Architecture string `json:"architecture,omitempty"`
}

type DefaultRelease struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec DefaultReleaseSpec `json:"spec"`
}
