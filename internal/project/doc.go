// Package project loads a provisioning project directory and runs its
// manifests through the reconciliation controller.
//
// A project holds a Project.yaml with its name and version, an optional
// values.yaml, and a templates directory. Templates are rendered with
// text/template and the sprig function library; the context exposes
// .Values and .Project.
package project
