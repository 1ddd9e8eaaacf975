// Package loader turns artifact bytes on disk into executable handles.
//
// Handles belong to a Generation. Rotation replaces the current generation
// wholesale; a retired generation frees its handles once the last artifact
// acquired from it is released.
package loader
