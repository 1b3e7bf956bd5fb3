// Package storagemock has the storage repository mocks.
package storagemock

//go:generate mockery --case underscore --output . --outpkg storagemock --dir .. --name RunRepository --structname MockRunRepository
//go:generate mockery --case underscore --output . --outpkg storagemock --dir .. --name MemoryRepository --structname MockMemoryRepository
