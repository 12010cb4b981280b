package repositories

import (
	"commission_backend/internal/models"

	"gorm.io/gorm"
)

type PackageRepository interface {
	CreatePackage(db *gorm.DB, pkg *models.Package) error
	FindPackageByID(db *gorm.DB, id string) (*models.Package, error)
	FindActivePackages(db *gorm.DB) ([]models.Package, error)
}

type PackageRepositoryImpl struct{}

func NewPackageRepository() PackageRepository {
	return &PackageRepositoryImpl{}
}

func (r *PackageRepositoryImpl) CreatePackage(db *gorm.DB, pkg *models.Package) error {
	return db.Create(pkg).Error
}

func (r *PackageRepositoryImpl) FindPackageByID(db *gorm.DB, id string) (*models.Package, error) {
	var pkg models.Package
	if err := db.First(&pkg, "id = ?", id).Error; err != nil {
		return nil, notFound(err, ErrPackageNotFound)
	}
	return &pkg, nil
}

func (r *PackageRepositoryImpl) FindActivePackages(db *gorm.DB) ([]models.Package, error) {
	var packages []models.Package
	err := db.Where("is_active = ?", true).Order("price ASC").Find(&packages).Error
	return packages, err
}
