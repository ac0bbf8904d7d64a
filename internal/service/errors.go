package service

import (
	apperrors "github.com/spec-kit/enrollment-portal/pkg/util/errorutil"
)

// notFoundOr turns a missing row into a NOT_FOUND error naming the resource and
// passes every other error through.
func notFoundOr(err error, resource, id string) error {
	if apperrors.IsNotFound(err) {
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	}
	return err
}
