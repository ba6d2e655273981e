package api

import (
    "fmt"
    "regexp"

    "fastdelivery/internal/model"
)

var windowRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d-([01]\d|2[0-3]):[0-5]\d$`)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func validateWindows(field string, windows []string) error {
    if len(windows) == 0 {
        return fmt.Errorf("%s must not be empty", field)
    }
    for _, w := range windows {
        if !windowRe.MatchString(w) {
            return fmt.Errorf("%s: invalid window %q (expected HH:MM-HH:MM)", field, w)
        }
    }
    return nil
}

func validateCourierIn(c model.CourierIn) error {
    if !c.CourierType.Known() {
        return fmt.Errorf("invalid courierType: %s", c.CourierType)
    }
    if len(c.Regions) == 0 {
        return fmt.Errorf("regions must not be empty")
    }
    for _, r := range c.Regions {
        if r <= 0 {
            return fmt.Errorf("invalid region: %d", r)
        }
    }
    return validateWindows("workingHours", c.WorkingHours)
}

func validateOrderIn(o model.OrderIn) error {
    if o.Weight <= 0 {
        return fmt.Errorf("weight must be > 0")
    }
    if o.Region <= 0 {
        return fmt.Errorf("invalid region: %d", o.Region)
    }
    if o.Cost < 0 {
        return fmt.Errorf("cost must be >= 0")
    }
    return validateWindows("deliveryHours", o.DeliveryHours)
}

func validateDate(s string) error {
    if !dateRe.MatchString(s) {
        return fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", s)
    }
    return nil
}
