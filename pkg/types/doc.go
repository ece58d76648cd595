// Package types defines the entity types, the Store and Table interfaces,
// collaborator interfaces, and the error model shared by every photofactory
// package.
//
// Entities (Job, Photo, StagedPhoto, User, Setting) are plain structs. Tables
// accept and return pointers to them as any; callers type-assert to the
// concrete struct. Operations that cross the access-layer boundary return a
// Result carrying either data or an *AppError.
package types
