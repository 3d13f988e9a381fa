package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"stall-lottery/internal/lottery"
	"stall-lottery/internal/model"
	"stall-lottery/internal/repository"
)

// StallClassView is a stall class with the numbering block derived for it.
type StallClassView struct {
	model.StallClass
	Start int    `json:"start"`
	End   int    `json:"end"`
	Range string `json:"range"`
}

func validateStallClass(c model.StallClass, requireID bool) error {
	switch {
	case requireID && c.ID <= 0:
		return fmt.Errorf("%w: id is required", lottery.ErrInvalidStallClass)
	case strings.TrimSpace(c.Category) == "":
		return fmt.Errorf("%w: category is required", lottery.ErrInvalidStallClass)
	case strings.TrimSpace(c.SubClass) == "":
		return fmt.Errorf("%w: sub_class is required", lottery.ErrInvalidStallClass)
	case c.StallCount < 0:
		return fmt.Errorf("%w: stall_count must not be negative", lottery.ErrInvalidStallClass)
	}
	return nil
}

// stallClassError turns registry conflicts into client-facing errors.
func stallClassError(err error) error {
	switch {
	case errors.Is(err, repository.ErrStallClassExists):
		return fmt.Errorf("%w: sub_class already exists", lottery.ErrInvalidStallClass)
	case errors.Is(err, repository.ErrStallClassNotFound):
		return lottery.ErrStallClassNotFound
	}
	return err
}

// checkDuplicateClasses rejects a batch naming the same (category, sub-class) twice.
func checkDuplicateClasses(classes []model.StallClass) error {
	seen := make(map[[2]string]int, len(classes))
	for i, c := range classes {
		key := [2]string{c.Category, c.SubClass}
		if first, ok := seen[key]; ok {
			return fmt.Errorf("row %d: %w: sub_class duplicates row %d", i+1, lottery.ErrInvalidStallClass, first)
		}
		seen[key] = i + 1
	}
	return nil
}

func trimStallClass(c model.StallClass) model.StallClass {
	c.Category = strings.TrimSpace(c.Category)
	c.SubClass = strings.TrimSpace(c.SubClass)
	return c
}

// ListStallClasses lists every class with its derived block, in configuration order.
func (s *LotteryService) ListStallClasses(ctx context.Context) ([]StallClassView, error) {
	classes, err := s.registry.ListStallClasses(ctx)
	if err != nil {
		return nil, err
	}

	blocks := make(map[int64]model.ClassRange, len(classes))
	seen := make(map[string]bool)
	for _, c := range classes {
		if seen[c.Category] {
			continue
		}
		seen[c.Category] = true
		ranges, _ := lottery.ComputeRanges(classes, c.Category)
		for _, r := range ranges {
			blocks[r.ClassID] = r
		}
	}

	views := make([]StallClassView, 0, len(classes))
	for _, c := range classes {
		v := StallClassView{StallClass: c, Range: "-"}
		if r, ok := blocks[c.ID]; ok && r.Count > 0 {
			v.Start, v.End = r.Start, r.End
			v.Range = fmt.Sprintf("%d-%d", r.Start, r.End)
		}
		views = append(views, v)
	}
	return views, nil
}

// AddStallClass creates a class and returns the refreshed list.
func (s *LotteryService) AddStallClass(ctx context.Context, class model.StallClass) ([]StallClassView, error) {
	class = trimStallClass(class)
	if err := validateStallClass(class, false); err != nil {
		return nil, err
	}
	id, err := s.registry.AddStallClass(ctx, class)
	if err != nil {
		return nil, stallClassError(err)
	}
	s.log.Info("stall class added", zap.Int64("id", id), zap.String("category", class.Category), zap.String("sub_class", class.SubClass))
	return s.ListStallClasses(ctx)
}

// UpdateStallClass updates one class and returns the refreshed list.
func (s *LotteryService) UpdateStallClass(ctx context.Context, class model.StallClass) ([]StallClassView, error) {
	class = trimStallClass(class)
	if err := validateStallClass(class, true); err != nil {
		return nil, err
	}
	if err := s.registry.UpdateStallClass(ctx, class); err != nil {
		return nil, stallClassError(err)
	}
	return s.ListStallClasses(ctx)
}

// UpdateStallClasses validates every row, then updates them all in one transaction.
func (s *LotteryService) UpdateStallClasses(ctx context.Context, classes []model.StallClass) ([]StallClassView, error) {
	clean := make([]model.StallClass, 0, len(classes))
	for i, c := range classes {
		c = trimStallClass(c)
		if err := validateStallClass(c, true); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		clean = append(clean, c)
	}
	if err := checkDuplicateClasses(clean); err != nil {
		return nil, err
	}
	if err := s.registry.UpdateStallClasses(ctx, clean); err != nil {
		return nil, stallClassError(err)
	}
	s.log.Info("stall classes updated", zap.Int("count", len(clean)))
	return s.ListStallClasses(ctx)
}

// DeleteStallClass removes a class and returns the refreshed list.
func (s *LotteryService) DeleteStallClass(ctx context.Context, id int64) ([]StallClassView, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id is required", lottery.ErrInvalidStallClass)
	}
	if err := s.registry.DeleteStallClass(ctx, id); err != nil {
		return nil, stallClassError(err)
	}
	return s.ListStallClasses(ctx)
}

// SyncStallClasses recomputes person counts from registrations and returns the list.
func (s *LotteryService) SyncStallClasses(ctx context.Context) ([]StallClassView, error) {
	if err := s.registry.SyncPersonCounts(ctx); err != nil {
		return nil, err
	}
	return s.ListStallClasses(ctx)
}
