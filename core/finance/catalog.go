package finance

import (
	"context"

	"github.com/pkg/errors"
)

func (svc *Service) CreateFeeType(ctx context.Context, caller Caller, nf NewFeeType) (FeeType, error) {
	if err := caller.mustBeAdmin("creating fee types"); err != nil {
		return FeeType{}, err
	}
	if err := nf.Validate(svc.validate); err != nil {
		return FeeType{}, err
	}

	ft := FeeType{
		ID:        newID(),
		Name:      nf.Name,
		Category:  nf.Category,
		IsActive:  true,
		CreatedAt: svc.timestamp(),
	}
	err := svc.repo.RunInTx(ctx, func(tx Tx) error {
		return tx.CreateFeeType(ctx, ft)
	})
	if errors.Is(err, ErrDuplicate) {
		return FeeType{}, fieldError("name", "a fee type named %q already exists", ft.Name)
	}
	if err != nil {
		return FeeType{}, err
	}
	return ft, nil
}

func (svc *Service) ListFeeTypes(ctx context.Context) ([]FeeType, error) {
	return svc.repo.QueryFeeTypes(ctx)
}

func (svc *Service) GetFeeType(ctx context.Context, id string) (FeeType, error) {
	return svc.repo.GetFeeType(ctx, id)
}

// UpdateFeeType renames or (de)activates a fee type.
// Once a structure references it, only the active flag may change.
func (svc *Service) UpdateFeeType(ctx context.Context, caller Caller, id string, uf UpdateFeeType) (FeeType, error) {
	if err := caller.mustBeAdmin("updating fee types"); err != nil {
		return FeeType{}, err
	}
	if err := uf.Validate(svc.validate); err != nil {
		return FeeType{}, err
	}

	var ft FeeType
	err := svc.repo.RunInTx(ctx, func(tx Tx) error {
		var err error
		if ft, err = tx.GetFeeType(ctx, id); err != nil {
			return err
		}

		renamed := (uf.Name != "" && uf.Name != ft.Name) || (uf.Category != "" && uf.Category != ft.Category)
		if renamed {
			count, err := tx.CountStructuresByFeeType(ctx, id)
			if err != nil {
				return err
			}
			if count > 0 {
				return &InvalidStateError{Entity: "fee type", ID: id, State: "referenced by fee structures", Action: "rename"}
			}
			if uf.Name != "" {
				ft.Name = uf.Name
			}
			if uf.Category != "" {
				ft.Category = uf.Category
			}
		}
		if uf.IsActive != nil {
			ft.IsActive = *uf.IsActive
		}
		return tx.UpdateFeeType(ctx, ft)
	})
	if errors.Is(err, ErrDuplicate) {
		return FeeType{}, fieldError("name", "a fee type named %q already exists", uf.Name)
	}
	if err != nil {
		return FeeType{}, err
	}
	return ft, nil
}

func (svc *Service) CreateFeeStructure(ctx context.Context, caller Caller, ns NewFeeStructure) (FeeStructure, error) {
	if err := caller.mustBeAdmin("creating fee structures"); err != nil {
		return FeeStructure{}, err
	}
	if err := ns.Validate(svc.validate); err != nil {
		return FeeStructure{}, err
	}

	now := svc.timestamp()
	fs := FeeStructure{
		ID:           newID(),
		FeeTypeID:    ns.FeeTypeID,
		AcademicYear: ns.AcademicYear,
		Classes:      ns.Classes,
		Amount:       ns.Amount,
		Frequency:    ns.Frequency,
		DueDay:       ns.DueDay,
		IsOptional:   ns.IsOptional,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := svc.repo.RunInTx(ctx, func(tx Tx) error {
		ft, err := tx.GetFeeType(ctx, ns.FeeTypeID)
		if err != nil {
			return err
		}
		if !ft.IsActive {
			return &InvalidStateError{Entity: "fee type", ID: ft.ID, State: "inactive", Action: "create a structure for"}
		}
		fs.FeeTypeName = ft.Name
		return tx.CreateFeeStructure(ctx, fs)
	})
	if err != nil {
		return FeeStructure{}, err
	}
	return fs, nil
}

func (svc *Service) GetFeeStructure(ctx context.Context, id string) (FeeStructure, error) {
	return svc.repo.GetFeeStructure(ctx, id)
}

func (svc *Service) ListFeeStructures(ctx context.Context, filter StructureFilter) ([]FeeStructure, error) {
	return svc.repo.QueryFeeStructures(ctx, filter)
}

// UpdateFeeStructure changes the structure for future instantiations only.
func (svc *Service) UpdateFeeStructure(ctx context.Context, caller Caller, id string, us UpdateFeeStructure) (FeeStructure, error) {
	if err := caller.mustBeAdmin("updating fee structures"); err != nil {
		return FeeStructure{}, err
	}
	if err := us.Validate(svc.validate); err != nil {
		return FeeStructure{}, err
	}

	var fs FeeStructure
	err := svc.repo.RunInTx(ctx, func(tx Tx) error {
		var err error
		if fs, err = tx.GetFeeStructure(ctx, id); err != nil {
			return err
		}
		if us.Amount.Valid {
			fs.Amount = us.Amount.Decimal
		}
		if us.Classes != nil {
			fs.Classes = us.Classes
		}
		if us.DueDay != nil {
			fs.DueDay = *us.DueDay
		}
		if us.IsOptional != nil {
			fs.IsOptional = *us.IsOptional
		}
		if us.IsActive != nil {
			fs.IsActive = *us.IsActive
		}
		fs.UpdatedAt = svc.timestamp()
		return tx.UpdateFeeStructure(ctx, fs)
	})
	if err != nil {
		return FeeStructure{}, err
	}
	return fs, nil
}
