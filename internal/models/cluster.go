// Package models contains domain models and entities.
package models

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// ClusterState is the lifecycle state of a managed cluster.
type ClusterState string

// Cluster states.
const (
	StateProvisioning ClusterState = "provisioning"
	StateActive       ClusterState = "active"
	StateUpdating     ClusterState = "updating"
	StateError        ClusterState = "error"
	StateRemoving     ClusterState = "removing"
)

// Valid reports whether s is a known state.
func (s ClusterState) Valid() bool {
	switch s {
	case StateProvisioning, StateActive, StateUpdating, StateError, StateRemoving:
		return true
	}
	return false
}

// Cluster providers.
const (
	ProviderImported = "imported"
	ProviderRKE      = "rke"
	ProviderCustom   = "custom"
)

// maxClusterNameLength matches the DNS-1123 label limit.
const maxClusterNameLength = 63

var clusterNameRegex = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// Validation and lookup errors
var (
	ErrEmptyClusterName   = errors.New("cluster name cannot be empty")
	ErrInvalidClusterName = errors.New("cluster name must be a lowercase DNS-1123 label of at most 63 characters")
	ErrInvalidProvider    = errors.New("unknown cluster provider")
	ErrInvalidState       = errors.New("unknown cluster state")
	ErrClusterNotFound    = errors.New("cluster not found")
	ErrClusterExists      = errors.New("cluster already exists")
)

// Cluster represents a managed Kubernetes cluster.
type Cluster struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	Provider          string            `json:"provider"`
	State             ClusterState      `json:"state"`
	KubernetesVersion string            `json:"kubernetesVersion,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
	CreatorID         string            `json:"creatorId,omitempty"`
	CreatedAt         time.Time         `json:"created"`
	UpdatedAt         time.Time         `json:"updated"`
}

// MatchesLabels reports whether every selector pair is present on the cluster.
func (c *Cluster) MatchesLabels(selector map[string]string) bool {
	for k, v := range selector {
		if c.Labels[k] != v {
			return false
		}
	}
	return true
}

// ClusterCreate represents the data needed to create a new cluster.
type ClusterCreate struct {
	ID                string
	Name              string
	Description       string
	Provider          string
	KubernetesVersion string
	Labels            map[string]string
	Annotations       map[string]string
	CreatorID         string
}

// Validate validates the ClusterCreate data.
func (c *ClusterCreate) Validate() error {
	if err := ValidateClusterName(c.Name); err != nil {
		return err
	}
	switch c.Provider {
	case ProviderImported, ProviderRKE, ProviderCustom:
	default:
		return ErrInvalidProvider
	}
	return nil
}

// ClusterUpdate carries the mutable fields of a cluster. Nil fields are left
// unchanged.
type ClusterUpdate struct {
	Description       *string
	State             *ClusterState
	KubernetesVersion *string
	Labels            map[string]string
	Annotations       map[string]string
}

// Validate validates the ClusterUpdate data.
func (u *ClusterUpdate) Validate() error {
	if u.State != nil && !u.State.Valid() {
		return ErrInvalidState
	}
	return nil
}

// Apply copies the set fields of u onto c.
func (u *ClusterUpdate) Apply(c *Cluster) {
	if u.Description != nil {
		c.Description = *u.Description
	}
	if u.State != nil {
		c.State = *u.State
	}
	if u.KubernetesVersion != nil {
		c.KubernetesVersion = *u.KubernetesVersion
	}
	if u.Labels != nil {
		c.Labels = u.Labels
	}
	if u.Annotations != nil {
		c.Annotations = u.Annotations
	}
}

// ClusterFilter narrows a cluster listing. Zero values match everything.
type ClusterFilter struct {
	Name   string
	State  ClusterState
	Labels map[string]string
}

// Matches reports whether c passes the filter.
func (f ClusterFilter) Matches(c *Cluster) bool {
	if f.Name != "" && c.Name != f.Name {
		return false
	}
	if f.State != "" && c.State != f.State {
		return false
	}
	return c.MatchesLabels(f.Labels)
}

// ParseLabelSelector parses "k1=v1,k2=v2" into a map.
func ParseLabelSelector(s string) (map[string]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.New("invalid label selector: " + part)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

// ValidateClusterName checks name against the DNS-1123 label rules.
func ValidateClusterName(name string) error {
	if name == "" {
		return ErrEmptyClusterName
	}
	if len(name) > maxClusterNameLength || !clusterNameRegex.MatchString(name) {
		return ErrInvalidClusterName
	}
	return nil
}
