// Package graph defines the shader graph types for Shrimp.
// A scene is a DAG of blocks whose input pads are fed by at most one
// output pad each, rooted at a single sink block that exposes the
// final shader variables.
package graph
