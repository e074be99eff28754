package graph

import "errors"

var ErrClusterNotFound = errors.New("graph: cluster not found")
